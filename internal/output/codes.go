// Package output provides JSON/styled output formatting and the error taxonomy.
package output

// Exit codes.
const (
	ExitOK          = 0  // Success
	ExitUsage       = 1  // Invalid arguments or flags
	ExitNotFound    = 2  // Resource not found
	ExitAuth        = 3  // Not authenticated
	ExitCredentials = 4  // No provider credentials configured
	ExitCipher      = 5  // Token material missing or undecryptable
	ExitNetwork     = 6  // Connection/DNS/timeout error
	ExitAPI         = 7  // Provider returned an error
	ExitInput       = 8  // Input validation failed before any request
	ExitResponse    = 9  // Provider response could not be understood
	ExitLogin       = 10 // Provider rejected the login
)

// Error codes for JSON envelope.
const (
	CodeUsage              = "usage"
	CodeNotFound           = "not_found"
	CodeAuth               = "auth_required"
	CodeMissingCredentials = "missing_credentials"
	CodeLoginFailed        = "login_failed"
	CodeMissingMaterial    = "missing_material"
	CodeCipherAuth         = "cipher_auth_failed"
	CodeCipherFailure      = "cipher_failure"
	CodeNetwork            = "network"
	CodeAPI                = "api_error"
	CodeParse              = "parse_error"
	CodeInvalidInput       = "invalid_input"
	CodeInvalidResponse    = "invalid_response"
)

// ExitCodeFor returns the exit code for a given error code.
func ExitCodeFor(code string) int {
	switch code {
	case CodeUsage:
		return ExitUsage
	case CodeNotFound:
		return ExitNotFound
	case CodeAuth:
		return ExitAuth
	case CodeMissingCredentials:
		return ExitCredentials
	case CodeLoginFailed:
		return ExitLogin
	case CodeMissingMaterial, CodeCipherAuth, CodeCipherFailure:
		return ExitCipher
	case CodeNetwork:
		return ExitNetwork
	case CodeAPI:
		return ExitAPI
	case CodeInvalidInput:
		return ExitInput
	case CodeParse, CodeInvalidResponse:
		return ExitResponse
	default:
		return ExitAPI
	}
}
