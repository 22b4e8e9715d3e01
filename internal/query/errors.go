package query

// Kind is the closed set of failure categories a query cycle can produce.
// Kinds stay structured until the display boundary, where they are rendered
// as error banners.
type Kind int

const (
	KindConfiguration Kind = iota + 1
	KindQuery
	KindResolution
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindQuery:
		return "query"
	case KindResolution:
		return "resolution"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}
