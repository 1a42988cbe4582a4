package dealkey

import (
	"strings"

	dealerrors "dealdesk/internal/errors"
)

// SplitFixed splits s on sep into prefix head tokens, suffix tail tokens and the
// raw middle (every token in between rejoined with sep, untrimmed). Head and tail
// tokens are trimmed. It fails with CodeInvalidFormat when s has fewer than
// prefix+suffix tokens; an empty middle is allowed.
func SplitFixed(s, sep string, prefix, suffix int) (head []string, middle string, tail []string, err error) {
	if prefix < 0 || suffix < 0 || sep == "" {
		return nil, "", nil, dealerrors.New(dealerrors.CodeInternal, "invalid split layout")
	}
	if strings.TrimSpace(s) == "" {
		return nil, "", nil, dealerrors.New(dealerrors.CodeInvalidFormat, "empty composite string")
	}

	parts := strings.Split(s, sep)
	if len(parts) < prefix+suffix {
		return nil, "", nil, dealerrors.Newf(dealerrors.CodeInvalidFormat,
			"expected at least %d %q-separated tokens, got %d", prefix+suffix, sep, len(parts)).
			WithDetails(map[string]int{"tokens": len(parts)})
	}

	head = trimAll(parts[:prefix])
	tail = trimAll(parts[len(parts)-suffix:])
	middle = strings.Join(parts[prefix:len(parts)-suffix], sep)
	return head, middle, tail, nil
}

func trimAll(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = strings.TrimSpace(t)
	}
	return out
}
