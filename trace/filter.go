package trace

import (
	"path/filepath"
	"regexp"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Matcher decides whether a source file belongs to code that should be
// traced.
type Matcher interface {
	Match(sourcePath string) bool
}

// Application is one body of source code that can be traced.
type Application struct {
	Name string `yaml:"name"`
	// Path is the root directory of the application's source files.
	Path string `yaml:"path"`
	// Module is used to find the source root in the binary's build info
	// when Path is empty.
	Module string `yaml:"module"`
	// Framework marks library or framework code, which is only traced
	// when FilterConfig.TraceFramework is set.
	Framework bool `yaml:"framework"`
}

// FilterConfig holds everything needed to build a Filter.
type FilterConfig struct {
	// Pattern, if set, is used instead of deriving one from Applications.
	Pattern        string
	Applications   []Application
	TraceFramework bool
}

// Filter is a compiled, immutable Matcher over source file paths.
type Filter struct {
	re *regexp.Regexp
}

var _ Matcher = &Filter{}

// Match reports whether sourcePath starts with a match of the filter's
// pattern.
func (f *Filter) Match(sourcePath string) bool {
	if f == nil {
		return true
	}
	return f.re.MatchString(sourcePath)
}

// String returns the anchored pattern the filter matches with.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.re.String()
}

// NewFilter builds a Filter from config. Applications whose source root
// cannot be determined are skipped with a warning. The pattern derived from
// the applications is logged once.
func NewFilter(config FilterConfig, logger *logrus.Entry) (*Filter, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	if config.Pattern != "" {
		re, err := regexp.Compile(anchor(config.Pattern))
		if err != nil {
			return nil, errors.Wrap(err, "invalid file filter pattern")
		}
		return &Filter{re: re}, nil
	}

	resolver := newModuleResolver()
	dirs := map[string]struct{}{}
	for _, app := range config.Applications {
		if app.Framework && !config.TraceFramework {
			continue
		}
		dir, ok := resolver.sourceRoot(app)
		if !ok {
			logger.WithField("application", app.Name).Warn("Can't get path for application; skipping it")
			continue
		}
		dirs[dir] = struct{}{}
	}

	quoted := make([]string, 0, len(dirs))
	for dir := range dirs {
		// Only files under dir, not siblings sharing its name as a prefix.
		quoted = append(quoted, regexp.QuoteMeta(strings.TrimSuffix(dir, "/")+"/"))
	}
	sort.Strings(quoted)
	pattern := "(" + strings.Join(quoted, "|") + ")"

	logger.WithField("file_filter", pattern).Info("Autogenerated file filter")

	re, err := regexp.Compile(anchor(pattern))
	if err != nil {
		return nil, errors.Wrap(err, "invalid derived file filter pattern")
	}
	return &Filter{re: re}, nil
}

func anchor(pattern string) string {
	return "^(?:" + pattern + ")"
}

// moduleResolver maps module paths to the prefix their files carry in
// runtime frames of a binary built with -trimpath.
type moduleResolver struct {
	roots map[string]string
}

func newModuleResolver() *moduleResolver {
	r := &moduleResolver{roots: map[string]string{}}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return r
	}
	if info.Main.Path != "" {
		r.roots[info.Main.Path] = info.Main.Path
	}
	for _, dep := range info.Deps {
		mod := dep
		if dep.Replace != nil {
			mod = dep.Replace
		}
		r.roots[dep.Path] = mod.Path + "@" + mod.Version
	}
	return r
}

func (r *moduleResolver) sourceRoot(app Application) (string, bool) {
	if app.Path != "" {
		return filepath.Clean(app.Path), true
	}
	if app.Module == "" {
		return "", false
	}
	root, ok := r.roots[app.Module]
	return root, ok
}
