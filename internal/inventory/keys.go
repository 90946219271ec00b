package inventory

import (
	"fmt"

	"github.com/servicedeck/servicedeck/pkg/models"
)

// serviceID derives the stable identity key for a unit. The same underlying
// unit must map to the same id on every merge cycle, and ids are unique
// within one snapshot because native ids are unique within their source.
func serviceID(kind models.SourceKind, nativeID string) string {
	return fmt.Sprintf("%s:%s", kind, nativeID)
}

// processNativeID is the native id used for bare processes discovered only
// through their listening ports.
func processNativeID(pid uint32) string {
	return fmt.Sprintf("pid-%d", pid)
}

// sourcePrecedence ranks sources for identity reconciliation: when two
// sources report what is provably the same unit (same live pid), the
// lower-ranked source wins and absorbs the other's ports.
func sourcePrecedence(kind models.SourceKind) int {
	switch kind {
	case models.SourceDocker:
		return 0
	case models.SourceSystemd, models.SourceLaunchd:
		return 1
	case models.SourceWinSvc:
		return 2
	case models.SourceProcess:
		return 3
	default:
		return 4
	}
}
