// Package weights ensures the model artifacts required by the prediction
// pipeline exist in their local cache directories, downloading them on first
// setup. Presence of a cache directory is the sole signal that an artifact
// is already fetched; nothing is ever invalidated or refetched.
package weights

import "fmt"

// Cache directory names, relative to the fetcher's base directory.
const (
	// SafetyCacheDir holds the safety checker model bundle.
	SafetyCacheDir = "safety-cache"

	// BaseCacheDir holds the SDXL base pipeline weights bundle.
	BaseCacheDir = "checkpoints"

	// UNetCacheDir holds the single accelerated UNet checkpoint file.
	UNetCacheDir = "unet-cache"

	// FeatureExtractorDir holds the safety checker's image preprocessor
	// configuration. It ships with the deployment and is never downloaded.
	FeatureExtractorDir = "feature-extractor"
)

// Remote locations for the weight bundles and the accelerated checkpoint.
const (
	BaseWeightsURL   = "https://weights.replicate.delivery/default/sdxl/sdxl-1.0.tar"
	SafetyWeightsURL = "https://weights.replicate.delivery/default/sdxl/safety-1.0.tar"

	UNetRepoID   = "ByteDance/SDXL-Lightning"
	UNetFileName = "sdxl_lightning_4step_unet.safetensors"
)

// Artifact describes one weight artifact and how to obtain it.
// Exactly one of ArchiveURL or HubRepoID/HubFileName is set.
type Artifact struct {
	// Name identifies the artifact in logs and errors.
	Name string

	// Dir is the cache directory, relative to the fetcher base directory.
	Dir string

	// ArchiveURL is the remote tar bundle extracted into Dir.
	ArchiveURL string

	// HubRepoID and HubFileName name a single Hugging Face Hub file
	// downloaded into Dir.
	HubRepoID   string
	HubFileName string

	// SHA256 optionally verifies a hub-file artifact after download.
	SHA256 string
}

// IsArchive reports whether the artifact is fetched as a tar bundle.
func (a Artifact) IsArchive() bool {
	return a.ArchiveURL != ""
}

// Validate checks that the artifact names exactly one fetch source.
func (a Artifact) Validate() error {
	if a.Name == "" || a.Dir == "" {
		return fmt.Errorf("weights: artifact name and dir are required")
	}

	hasArchive := a.ArchiveURL != ""
	hasHubFile := a.HubRepoID != "" && a.HubFileName != ""

	if hasArchive == hasHubFile {
		return fmt.Errorf("weights: artifact %q must have exactly one of archive URL or hub file", a.Name)
	}
	return nil
}

// SafetyArtifact returns the safety checker bundle artifact.
func SafetyArtifact() Artifact {
	return Artifact{
		Name:       "safety-checker",
		Dir:        SafetyCacheDir,
		ArchiveURL: SafetyWeightsURL,
	}
}

// BaseArtifact returns the SDXL base pipeline bundle artifact.
func BaseArtifact() Artifact {
	return Artifact{
		Name:       "sdxl-base",
		Dir:        BaseCacheDir,
		ArchiveURL: BaseWeightsURL,
	}
}

// UNetArtifact returns the accelerated UNet checkpoint artifact.
func UNetArtifact() Artifact {
	return Artifact{
		Name:        "lightning-unet",
		Dir:         UNetCacheDir,
		HubRepoID:   UNetRepoID,
		HubFileName: UNetFileName,
	}
}

// All returns the full artifact set in fetch order.
func All() []Artifact {
	return []Artifact{
		SafetyArtifact(),
		BaseArtifact(),
		UNetArtifact(),
	}
}
