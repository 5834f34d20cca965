package platform

import "fmt"

// New returns the adapter for an account's platform tag. Callers resolve the
// adapter once per account; an unknown tag is a configuration error.
func New(platformTag string, creds Credentials, cfg Config) (Adapter, error) {
	switch platformTag {
	case "paxful":
		return newPaxfulClient(creds, cfg), nil
	case "noones":
		return newNoonesClient(creds, cfg), nil
	default:
		return nil, fmt.Errorf("unsupported platform %q", platformTag)
	}
}
