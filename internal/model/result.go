package model

// InstallationResultKind enumerates the possible outcomes of an install
// attempt (§3).
type InstallationResultKind string

const (
	InstallOk                       InstallationResultKind = "Ok"
	InstallNeedCompletion           InstallationResultKind = "NeedCompletion"
	InstallInstallFailed            InstallationResultKind = "InstallFailed"
	InstallVerificationFailed       InstallationResultKind = "VerificationFailed"
	InstallDownloadFailed           InstallationResultKind = "DownloadFailed"
	InstallDownloadFailedNoSpace    InstallationResultKind = "DownloadFailed_NoSpace"
	InstallUnknownError             InstallationResultKind = "UnknownError"
)

// InstallationResult is a tagged result carrying a kind plus a human
// description, the common return shape for the install/download pipeline.
type InstallationResult struct {
	Kind        InstallationResultKind
	Description string
}

// IsOk reports whether the result represents success.
func (r InstallationResult) IsOk() bool {
	return r.Kind == InstallOk
}

// Ok builds a successful InstallationResult.
func Ok(description string) InstallationResult {
	return InstallationResult{Kind: InstallOk, Description: description}
}

// NewResult builds an InstallationResult of the given kind.
func NewResult(kind InstallationResultKind, description string) InstallationResult {
	return InstallationResult{Kind: kind, Description: description}
}
