package prebuilt

import (
	"fmt"
	"strings"
)

// MatchKind reports how confidently MatchAsset picked an asset.
type MatchKind int

const (
	// MatchExact means the asset name carries both the version and a platform keyword.
	MatchExact MatchKind = iota
	// MatchPlatform means only a platform keyword matched.
	MatchPlatform
	// MatchFallback means the asset is merely the first shared object.
	MatchFallback
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchPlatform:
		return "platform"
	case MatchFallback:
		return "fallback"
	default:
		return fmt.Sprintf("MatchKind(%d)", int(k))
	}
}

var platformKeywords = map[string][]string{
	"arm64-v8a":    {"android-arm64", "arm64"},
	"armeabi-v7a":  {"android-arm", "arm"},
	"x86":          {"android-x86", "x86"},
	"x86_64":       {"android-x86_64", "x86_64"},
	"linux-x86_64": {"linux-x86_64"},
}

// PlatformKeywords returns the asset name fragments that identify platform.
// Unknown platforms match on their own name.
func PlatformKeywords(platform string) []string {
	if kw, ok := platformKeywords[platform]; ok {
		return kw
	}
	return []string{platform}
}

// MatchAsset picks the release asset for platform and version. Matching is
// case-insensitive and tried in three passes: version plus platform keyword,
// platform keyword alone, then any .so file. Within a pass the first asset in
// release order wins.
func MatchAsset(assets []Asset, platform, version string) (Asset, MatchKind, error) {
	keywords := PlatformKeywords(platform)
	hasKeyword := func(name string) bool {
		for _, kw := range keywords {
			if strings.Contains(name, strings.ToLower(kw)) {
				return true
			}
		}
		return false
	}

	ver := strings.ToLower(version)
	for _, a := range assets {
		name := strings.ToLower(a.Name)
		if strings.Contains(name, ver) && hasKeyword(name) {
			return a, MatchExact, nil
		}
	}
	for _, a := range assets {
		if hasKeyword(strings.ToLower(a.Name)) {
			return a, MatchPlatform, nil
		}
	}
	for _, a := range assets {
		if strings.HasSuffix(a.Name, ".so") {
			return a, MatchFallback, nil
		}
	}
	return Asset{}, 0, fmt.Errorf("%w for platform %s and version %s", ErrNoMatch, platform, version)
}
