package payment

// Kind discriminates the two reference shapes the processor issues:
// hosted checkout sessions and embedded payment intents.
type Kind string

const (
	KindSession Kind = "session"
	KindIntent  Kind = "intent"
)

// Reference is an opaque handle to one payment attempt, tagged with the
// shape of the token the client came back with. Exactly one token per
// confirmation call.
type Reference struct {
	Kind Kind
	ID   string
}

func SessionReference(id string) Reference {
	return Reference{Kind: KindSession, ID: id}
}

func IntentReference(id string) Reference {
	return Reference{Kind: KindIntent, ID: id}
}

func (r Reference) IsZero() bool {
	return r.ID == "" || (r.Kind != KindSession && r.Kind != KindIntent)
}
