package internal

import "time"

// Intake table columns (0-based positions within a row).
const (
	IntakeComposite = iota
	IntakePartner
	IntakeGeo
	IntakeLanguage
	IntakeSource
	IntakeCPA
	IntakeCRG
	IntakeFunnels
	IntakeCR

	IntakeColumns
)

// Ledger table columns (0-based positions within a row).
const (
	LedgerDate = iota
	LedgerDealID
	LedgerPartner
	LedgerPartnerPriority
	LedgerGeo
	LedgerLanguage
	LedgerSource
	LedgerCPA
	LedgerCRG
	LedgerCR
	LedgerCPL
	LedgerFunnels
	LedgerEPL
	LedgerQuality
	LedgerClassification
	LedgerFullDealText

	LedgerColumns
)

// Reference table columns.
const (
	ReferencePartner = iota
	ReferenceClassification

	ReferenceColumns
)

const (
	// InvalidFormatMarker is written into the partner cell of an intake row whose
	// composite string could not be decoded.
	InvalidFormatMarker = "Invalid Format"

	TriggerReady      = "Ready"
	TriggerProcessing = "Processing"

	LedgerDateLayout = "2006-01-02"
)

var IntakeHeaders = []string{
	"Deal", "Partner", "Geo", "Language", "Source", "CPA", "CRG", "Funnels", "CR",
}

var LedgerHeaders = []string{
	"Date", "Deal ID", "Partner", "Partner Priority", "Geo", "Language", "Source", "CPA", "CRG",
	"CR", "CPL", "Funnels", "EPL", "Quality", "Affiliate/Brand Interested", "FULL DEAL",
}

var ReferenceHeaders = []string{"Partner", "Type"}

type Classification string

const (
	ClassBrand   Classification = "Brand"
	ClassNetwork Classification = "Network"
)

// DealFields is the structured content of one intake row (columns B..I).
type DealFields struct {
	Partner  string
	Geo      string
	Language string
	Source   string
	CPA      string
	CRG      float64
	Funnels  string
	CR       string
}

// DealRecord is one ledger row. CRGText keeps a crg cell that is not a number,
// as typed, and is only set when CRG is nil.
type DealRecord struct {
	Date            time.Time
	DealID          string
	Partner         string
	PartnerPriority string
	Geo             string
	Language        string
	Source          string
	CPA             string
	CRG             *float64
	CRGText         string
	CR              any
	Funnels         []string
	Classification  Classification
	FullDealText    string
}

type RunKind string

const (
	RunTransfer RunKind = "transfer"
	RunExpand   RunKind = "expand"
	RunJoin     RunKind = "join"
	RunImport   RunKind = "import"
)

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunResolved  RunStatus = "resolved"
)

// RowRange is an inclusive 1-based table row span; the zero value means "no rows".
type RowRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func (r RowRange) Empty() bool {
	return r.From <= 0 || r.To < r.From
}

func (r RowRange) Len() int {
	if r.Empty() {
		return 0
	}
	return r.To - r.From + 1
}

type RunRecord struct {
	ID          string
	Kind        RunKind
	Status      RunStatus
	StartedAt   string
	FinishedAt  string
	Scanned     int
	Transferred int
	Skipped     int
	Invalid     int
	Added       int
	LedgerRows  RowRange
	IntakeRows  RowRange
	Error       string
}

type ImportRow struct {
	ID        int
	Source    string
	Hash      string
	Lines     int
	CreatedAt string
}

type LineSource string

const (
	SourceText      LineSource = "text"
	SourceEmailText LineSource = "email_text"
	SourceHTMLTable LineSource = "html_table"
	SourceXLSX      LineSource = "xlsx"
	SourcePDF       LineSource = "pdf"
)

// DealLine is one composite deal string found in an imported file.
type DealLine struct {
	LineNo int
	Source LineSource
	Text   string
	Meta   map[string]any
}
