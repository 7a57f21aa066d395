package registry

import (
	"fmt"
	"strings"

	"github.com/TFMV/dwgate/pkg/models"
)

// autoFix repairs common configuration slips in place and describes each
// change it made.
func autoFix(f *fragment) []string {
	var fixes []string

	switch f.kind {
	case "MAXCOMPUTE", "DATAWORKS":
		region := f.params[models.ParamRegion]
		if region != "" && f.params[models.ParamEndpoint] == "" {
			f.params[models.ParamEndpoint] = fmt.Sprintf("http://service.%s.maxcompute.aliyun.com/api", region)
			fixes = append(fixes, fmt.Sprintf("Generated %s_%s", f.prefix, models.ParamEndpoint))
		}
	case "HOLO", "HOLOGRES":
		if f.params[models.ParamHost] != "" && f.params[models.ParamType] == "" {
			f.params[models.ParamType] = string(models.KindHologres)
			fixes = append(fixes, fmt.Sprintf("Added %s_%s=%s", f.prefix, models.ParamType, models.KindHologres))
		}
	}

	if typ := f.params[models.ParamType]; typ != "" {
		if kind, err := models.ParsePlatformKind(typ); err == nil && kind.String() != typ {
			f.params[models.ParamType] = kind.String()
			fixes = append(fixes, fmt.Sprintf("Fixed %s_%s (%s → %s)", f.prefix, models.ParamType, strings.TrimSpace(typ), kind))
		}
	}

	return fixes
}
