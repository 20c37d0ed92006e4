package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaSource []byte

//go:embed defaults/tvc_us.cue
var defaultSource []byte

// DefaultName is the file name reported for the embedded default table.
const DefaultName = "defaults/tvc_us.cue"

// LoadError is the only fatal error in the system: a missing or invalid
// configuration table.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build or schema validation failed

	ErrCodeAnchors    = "E101" // Slot anchors
	ErrCodeResolver   = "E102" // Windows, bad pointers, probes
	ErrCodeLayout     = "E103" // Field layout
	ErrCodeBands      = "E104" // Plausibility bands and variance tunables
	ErrCodeInference  = "E105" // Hit, combo and advantage tunables
	ErrCodePhases     = "E106" // Phase id sets
	ErrCodeNames      = "E107" // Entity names and move labels
	ErrCodeDurations  = "E108" // Active-duration table
	ErrCodeDebugFlags = "E109" // Debug flag allowlist
	ErrCodeScan       = "E110" // Deep-scan region
)

// MapFieldToErrorCode maps a compile error field to an error code.
func MapFieldToErrorCode(field string) string {
	head, _, _ := strings.Cut(field, ".")
	switch head {
	case "anchors":
		return ErrCodeAnchors
	case "resolver":
		return ErrCodeResolver
	case "layout":
		return ErrCodeLayout
	case "bands", "variance", "stale_cycles":
		return ErrCodeBands
	case "hit", "combo", "advantage":
		return ErrCodeInference
	case "phases":
		return ErrCodePhases
	case "entity_names", "move_labels":
		return ErrCodeNames
	case "active_durations":
		return ErrCodeDurations
	case "debug":
		return ErrCodeDebugFlags
	case "scan":
		return ErrCodeScan
	default:
		return ErrCodeGeneric
	}
}

// LoadDefault compiles the embedded default table.
func LoadDefault() (*Table, error) {
	return LoadBytes(DefaultName, defaultSource)
}

// Load reads a table from a .cue file or from a directory holding one CUE
// package. An empty path selects the embedded default.
func Load(path string) (*Table, error) {
	if path == "" {
		return LoadDefault()
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing config: %v", err)}
	}

	if !info.IsDir() {
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}
		}
		return LoadBytes(path, src)
	}

	files, err := filepath.Glob(filepath.Join(path, "*.cue"))
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: path})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}
	value := ctx.BuildInstance(inst)
	return finish(ctx, value)
}

// LoadBytes compiles a single CUE document.
func LoadBytes(name string, src []byte) (*Table, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(src, cue.Filename(name))
	return finish(ctx, value)
}

func finish(ctx *cue.Context, value cue.Value) (*Table, error) {
	if err := value.Err(); err != nil {
		return nil, buildError(err)
	}

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("compiling schema: %v", err)}
	}

	unified := schema.LookupPath(cue.ParsePath("#Table")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, buildError(err)
	}

	table, err := Compile(unified)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return table, nil
}

func buildError(err error) *LoadError {
	le := &LoadError{Code: ErrCodeBuildFailed, Message: err.Error()}
	var ce *CompileError
	if errors.As(formatCUEError(err), &ce) {
		le.Pos = ce.Pos
	}
	return le
}

// convertCompileError converts a compile error to a LoadError with
// position info.
func convertCompileError(err error) *LoadError {
	var ce *CompileError
	if errors.As(err, &ce) {
		return &LoadError{
			Code:    MapFieldToErrorCode(ce.Field),
			Message: fmt.Sprintf("%s: %s", ce.Field, ce.Message),
			Pos:     ce.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// IsLoadError reports whether err is (or wraps) a *LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}
