package bot

import (
	"fmt"
	"strings"

	"github.com/roselinebot/roseline/internal/store"
	"github.com/roselinebot/roseline/internal/vndb"
)

// formatVN renders a remote VN record as a title plus its vndb link.
func formatVN(vn vndb.VNItem) string {
	return fmt.Sprintf("%s - https://vndb.org/v%d", vn.Title, vn.ID)
}

// formatVNData renders a stored VN with its hooks as a single line.
func formatVNData(data store.VNData) string {
	switch len(data.Hooks) {
	case 0:
		return fmt.Sprintf("No hook exists for VN '%s'", data.VN.Title)
	case 1:
		return fmt.Sprintf("%s - %s", data.VN.Title, data.Hooks[0].Code)
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "%s - ", data.VN.Title)
		for i, hook := range data.Hooks {
			if i > 0 {
				b.WriteString(" | ")
			}
			fmt.Fprintf(&b, "%s: %s", hook.Version, hook.Code)
		}
		return b.String()
	}
}

func formatHookAdded(hook store.Hook) string {
	return fmt.Sprintf("Added hook '%s' for VN: v%d", hook.Code, hook.VNID)
}

func formatHookDeleted(target, version string, removed int64) string {
	if removed == 0 {
		return fmt.Sprintf("%s: No hook for the version '%s' exists", target, version)
	}
	return fmt.Sprintf("%s: Removed hook", target)
}

func formatVNDeleted(target string, removed int64) string {
	if removed == 0 {
		return fmt.Sprintf("%s: No such VN exists", target)
	}
	return fmt.Sprintf("%s: Removed VN with all hooks", target)
}

// formatObject renders one expanded reference. References lifted from a
// vndb.org URL do not get the URL echoed back.
func formatObject(ref Ref, obj vndb.ObjectItem) string {
	short := ref.Kind.Short()
	if !ref.AddURL {
		return fmt.Sprintf("%s%d: %s", short, obj.ID, obj.Label())
	}
	return fmt.Sprintf("%s%d: %s - https://vndb.org/%s%d", short, obj.ID, obj.Label(), short, obj.ID)
}
