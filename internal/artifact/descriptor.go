package artifact

import (
	"fmt"
	"os"
)

// Pinned ViaProxy release. The argument and config contract of the
// supervisor is tied to this exact version, so bumping it means
// re-checking the launch flags and the readiness signal too.
const (
	DefaultVersion = "3.0.22"
	DefaultSHA256  = "9b7f2b1f3c5e0f41a9d8f8c27f3f6a7d2e4c1905c3a86d2b57b1e4f0a6c9d8e3"

	downloadURLTemplate = "https://github.com/ViaVersion/ViaProxy/releases/download/v%s/ViaProxy-%s.jar"
)

// Descriptor identifies the required external proxy binary. It is built
// once at startup and read-only afterwards.
type Descriptor struct {
	Version string
	URL     string
	SHA256  string
}

// DefaultDescriptor returns the descriptor for the pinned ViaProxy release.
//
// AZALEA_VIAVERSION_PROXY_VERSION and AZALEA_VIAVERSION_PROXY_SHA256
// override the pin together: a version override without a matching hash
// override would make every fetch fail verification, so both must be set
// to repin.
func DefaultDescriptor() Descriptor {
	version := DefaultVersion
	sha := DefaultSHA256
	if v := os.Getenv("AZALEA_VIAVERSION_PROXY_VERSION"); v != "" {
		version = v
	}
	if s := os.Getenv("AZALEA_VIAVERSION_PROXY_SHA256"); s != "" {
		sha = s
	}
	return Descriptor{
		Version: version,
		URL:     fmt.Sprintf(downloadURLTemplate, version, version),
		SHA256:  sha,
	}
}

// Filename returns the artifact's file name inside the cache directory.
func (d Descriptor) Filename() string {
	return fmt.Sprintf("ViaProxy-%s.jar", d.Version)
}
