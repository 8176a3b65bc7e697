// Package exitstatus defines the CLI's stable integer exit codes (§6 "Exit
// code values must be stable integers defined by the project's status
// enum"). Values are assigned once and never renumbered; append, don't
// reorder.
package exitstatus

type Code int

const (
	Ok Code = iota
	CheckinOkCached
	CheckinFailure
	InstallNeedsReboot
	InstallAppsNeedFinalization
	InstallNeedsRebootForBootFw
	TufMetaPullFailure
	TufTargetNotFound
	InstallDowngradeAttempt
	InstallationInProgress
	DownloadFailure
	DownloadFailureNoSpace
	DownloadFailureVerificationFailed
	InstallAppPullFailure
	InstallRollbackOk
	InstallRollbackFailed
	InstallRollbackNeedsReboot
	UnknownError
	NoPendingInstallation
	OkNeedsRebootForBootFw
)

var names = map[Code]string{
	Ok:                                "Ok",
	CheckinOkCached:                   "CheckinOkCached",
	CheckinFailure:                    "CheckinFailure",
	InstallNeedsReboot:                "InstallNeedsReboot",
	InstallAppsNeedFinalization:       "InstallAppsNeedFinalization",
	InstallNeedsRebootForBootFw:       "InstallNeedsRebootForBootFw",
	TufMetaPullFailure:                "TufMetaPullFailure",
	TufTargetNotFound:                 "TufTargetNotFound",
	InstallDowngradeAttempt:           "InstallDowngradeAttempt",
	InstallationInProgress:            "InstallationInProgress",
	DownloadFailure:                   "DownloadFailure",
	DownloadFailureNoSpace:            "DownloadFailureNoSpace",
	DownloadFailureVerificationFailed: "DownloadFailureVerificationFailed",
	InstallAppPullFailure:             "InstallAppPullFailure",
	InstallRollbackOk:                 "InstallRollbackOk",
	InstallRollbackFailed:             "InstallRollbackFailed",
	InstallRollbackNeedsReboot:        "InstallRollbackNeedsReboot",
	UnknownError:                      "UnknownError",
	NoPendingInstallation:             "NoPendingInstallation",
	OkNeedsRebootForBootFw:            "OkNeedsRebootForBootFw",
}

func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return "UnknownError"
}

// FromInstallResult maps an InstallationResultKind/description pair produced
// by the controller/rootfs packages onto the install/complete command's exit
// code table (§6). Kept as a plain function (not a method on model, which
// must not depend on the CLI layer) per string-matching on the description
// markers the controller emits for its named sub-outcomes.
func FromInstallResult(kind, description string) Code {
	switch {
	case description == "InstallRollbackOk":
		return InstallRollbackOk
	case description == "InstallRollbackNeedsReboot":
		return InstallRollbackNeedsReboot
	case hasPrefix(description, "InstallRollbackFailed"):
		return InstallRollbackFailed
	}

	switch kind {
	case "Ok":
		return Ok
	case "NeedCompletion":
		return InstallNeedsReboot
	case "DownloadFailed_NoSpace":
		return DownloadFailureNoSpace
	case "DownloadFailed":
		return DownloadFailure
	case "VerificationFailed":
		return DownloadFailureVerificationFailed
	default:
		return UnknownError
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
