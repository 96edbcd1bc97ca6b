package sock

// CredentialSource produces the payload sent in the $auth envelope when the
// server requests credentials. Produce receives the client so callers can
// derive per-connection credentials.
type CredentialSource interface {
	Produce(c *Client) (any, error)
}

// CredentialFunc adapts a function to the CredentialSource interface.
type CredentialFunc func(c *Client) (any, error)

func (f CredentialFunc) Produce(c *Client) (any, error) {
	return f(c)
}

// StaticCredential is a CredentialSource that always submits the same value.
type StaticCredential struct {
	Value any
}

func (s StaticCredential) Produce(*Client) (any, error) {
	return s.Value, nil
}
