package shaders

import (
	_ "embed"
)

//go:embed grass.wgsl
var GrassWGSL string
