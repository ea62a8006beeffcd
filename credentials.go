package typedb

// Credentials carries the username/password pair sent during the
// connection handshake. Opaque to every layer below the facade.
type Credentials struct {
	Username string
	Password string
}

func NewCredentials(username, password string) Credentials {
	return Credentials{Username: username, Password: password}
}
