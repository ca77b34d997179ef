package modules

// SetTrustedHost points remote imports at a test server.
func (l *Loader) SetTrustedHost(host string) {
	l.trustedHost = host
}
