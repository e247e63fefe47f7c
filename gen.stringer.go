//go:build stringer

//go:generate go run golang.org/x/tools/cmd/stringer -linecomment -type GGUFVersion -output zz_generated.ggufversion.stringer.go -trimprefix GGUFVersion
//go:generate go run golang.org/x/tools/cmd/stringer -linecomment -type GGUFMetadataValueType -output zz_generated.ggufmetadatavaluetype.stringer.go -trimprefix GGUFMetadataValueType
//go:generate go run golang.org/x/tools/cmd/stringer -linecomment -type TensorRole -output zz_generated.tensorrole.stringer.go -trimprefix Role
package llmk

import _ "golang.org/x/tools/cmd/stringer"
