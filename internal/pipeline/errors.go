package pipeline

// Failure codes carried by DiarizationFailure.
const (
	CodeCredentialsMissing = "credentials_missing"
	CodeCredentialsInvalid = "credentials_invalid"
	CodeDiarizationFailed  = "diarization_failed"
)

// FetchError means the source could not be retrieved. The job fails.
type FetchError struct {
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return "fetch: " + e.Message
	}
	return "fetch: " + e.Message + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error { return e.Err }

// TranscriptionError means no transcript could be produced. The job fails.
type TranscriptionError struct {
	Message string
	Err     error
}

func (e *TranscriptionError) Error() string {
	if e.Err == nil {
		return "transcribe: " + e.Message
	}
	return "transcribe: " + e.Message + ": " + e.Err.Error()
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// DiarizationError is recoverable: the job falls back to a plain transcript.
type DiarizationError struct {
	Message string
	Err     error
}

func (e *DiarizationError) Error() string {
	if e.Err == nil {
		return "diarize: " + e.Message
	}
	return "diarize: " + e.Message + ": " + e.Err.Error()
}

func (e *DiarizationError) Unwrap() error { return e.Err }

// AuthenticationError is a DiarizationError the user can fix by supplying or
// correcting credentials. Missing is false when a credential was rejected.
type AuthenticationError struct {
	Message string
	Missing bool
	Err     error
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return "diarize auth: " + e.Message
	}
	return "diarize auth: " + e.Message + ": " + e.Err.Error()
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

const credentialSetupMessage = "speaker identification requires a one-time credential setup"

// NewAuthenticationError builds the credential error with the standard user
// message.
func NewAuthenticationError(missing bool, err error) *AuthenticationError {
	msg := credentialSetupMessage + ": credentials were rejected, check HF_TOKEN"
	if missing {
		msg = credentialSetupMessage + ": set HF_TOKEN to a valid access token"
	}
	return &AuthenticationError{Message: msg, Missing: missing, Err: err}
}
