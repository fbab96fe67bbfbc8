package domain

type PayloadKind string

const (
	PayloadText  PayloadKind = "text"
	PayloadImage PayloadKind = "image"
	PayloadChart PayloadKind = "chart"
)

// Payload is what a deliverer sends to a destination.
type Payload struct {
	Kind        PayloadKind
	Filename    string
	ContentType string
	Body        []byte
}

func TextPayload(filename, text string) Payload {
	return Payload{
		Kind:        PayloadText,
		Filename:    filename,
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte(text),
	}
}
