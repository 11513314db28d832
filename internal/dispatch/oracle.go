package dispatch

import (
	"os"
	"path/filepath"
	"strings"
)

// Oracle classifies candidate paths and answers whether a candidate already
// has its completion artifact. It holds no state beyond naming rules.
type Oracle struct {
	TargetDir       string
	InputExtension  string
	OutputExtension string
}

// NewOracle builds an oracle for the given target directory name and extensions.
func NewOracle(targetDir, inputExt, outputExt string) Oracle {
	return Oracle{
		TargetDir:       targetDir,
		InputExtension:  inputExt,
		OutputExtension: outputExt,
	}
}

// Matches reports whether path names an input file directly inside a
// directory called TargetDir. The file itself is not inspected.
func (o Oracle) Matches(path string) bool {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, o.InputExtension) || len(name) == len(o.InputExtension) {
		return false
	}
	return filepath.Base(filepath.Dir(path)) == o.TargetDir
}

// ArtifactPath returns the completion artifact path for candidate: the same
// stem with the output extension.
func (o Oracle) ArtifactPath(candidate string) string {
	return strings.TrimSuffix(candidate, o.InputExtension) + o.OutputExtension
}

// Completed reports whether the completion artifact for candidate exists.
func (o Oracle) Completed(candidate string) bool {
	_, err := os.Lstat(o.ArtifactPath(candidate))
	return err == nil
}
