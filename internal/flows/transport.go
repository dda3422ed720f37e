package flows

import (
	"net/http"
	"net/textproto"
	"strings"
)

// TransportPolicy is the hardened-mode transport requirement. A disabled policy is
// bypassed entirely.
type TransportPolicy struct {
	Enforce         bool
	RequiredHeaders []string
}

// CheckTransport returns ValidateFailureInsecureTransport when the request did not
// arrive over a secure transport, then ValidateFailureMissingHeaders with the absent
// header names.
func CheckTransport(policy TransportPolicy, secure bool, header http.Header) (ValidateFailureKind, []string) {
	if !policy.Enforce {
		return ValidateFailureNone, nil
	}
	if !secure {
		return ValidateFailureInsecureTransport, nil
	}

	var missing []string
	for _, name := range policy.RequiredHeaders {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if strings.TrimSpace(header.Get(name)) == "" {
			missing = append(missing, textproto.CanonicalMIMEHeaderKey(name))
		}
	}
	if len(missing) > 0 {
		return ValidateFailureMissingHeaders, missing
	}
	return ValidateFailureNone, nil
}
