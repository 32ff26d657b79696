package domain

// NotAvailable is the placeholder for any field missing from the source text.
const NotAvailable = "N/A"

type Direction string

const (
	DirectionUp      Direction = "up"
	DirectionDown    Direction = "down"
	DirectionUnknown Direction = "unknown"
)

// SignalFields holds the values extracted from a trade-signal post.
type SignalFields struct {
	Asset          string
	Timeframe      string
	EntryTime      string
	Direction      Direction
	DirectionLabel string // fallback text shown when Direction is unknown
	Trend          string
	Forecast       string
	PayoutRate     string
}

// NewSignalFields returns fields with every value set to NotAvailable.
func NewSignalFields() SignalFields {
	return SignalFields{
		Asset:          NotAvailable,
		Timeframe:      NotAvailable,
		EntryTime:      NotAvailable,
		Direction:      DirectionUnknown,
		DirectionLabel: NotAvailable,
		Trend:          NotAvailable,
		Forecast:       NotAvailable,
		PayoutRate:     NotAvailable,
	}
}

// ResultCategory classifies a trade outcome notice.
type ResultCategory string

const (
	ResultMTGWin          ResultCategory = "mtg_win"
	ResultWin             ResultCategory = "win"
	ResultLoss            ResultCategory = "loss"
	ResultLossConsecutive ResultCategory = "loss_consecutive"
	ResultDoji            ResultCategory = "doji"
)

// Kind is the top-level outcome of classification.
type Kind string

const (
	KindIgnore Kind = "ignore"
	KindSignal Kind = "signal"
	KindResult Kind = "result"
)

// Classification is the tagged result of inspecting one message.
// Signal is set for KindSignal, Result and RawText for KindResult.
type Classification struct {
	Kind    Kind
	Signal  SignalFields
	Result  ResultCategory
	RawText string
}

// Label returns a short name used for logs, metrics and stats.
func (c Classification) Label() string {
	switch c.Kind {
	case KindSignal:
		return "signal"
	case KindResult:
		return string(c.Result)
	default:
		return "ignore"
	}
}
