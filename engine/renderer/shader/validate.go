package shader

import (
	"fmt"

	"github.com/gogpu/naga"
)

// Validate compiles WGSL source with naga and reports the first error. The compiled output is
// discarded; wgpu compiles the module itself.
//
// Parameters:
//   - source: the WGSL source code
//
// Returns:
//   - error: the compile error, or nil when the source is valid
func Validate(source string) error {
	out, err := naga.Compile(source)
	if err != nil {
		return fmt.Errorf("shader: wgsl validation failed: %w", err)
	}
	if len(out) == 0 {
		return fmt.Errorf("shader: wgsl validation produced no output")
	}
	return nil
}

// ValidateShader validates a Shader's source, naming the shader in the error.
func ValidateShader(s Shader) error {
	if err := Validate(s.Source()); err != nil {
		return fmt.Errorf("%s: %w", s.Key(), err)
	}
	return nil
}
