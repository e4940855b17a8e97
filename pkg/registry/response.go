package registry

import (
	"github.com/Masterminds/semver/v3"

	"github.com/matzehuels/depstack/pkg/errors"
)

// Response is the JSON document returned by the registry package endpoint.
// Pointer fields distinguish "absent" from "zero" so that missing keys can
// be reported precisely.
type Response struct {
	Code    *int          `json:"code"`
	Message string        `json:"message"`
	Data    *ResponseData `json:"data"`
}

// ResponseData carries the version payload. VersionData is present when a
// specific version was requested; LatestVersionData otherwise.
type ResponseData struct {
	VersionData       *VersionData `json:"version_data"`
	LatestVersionData *VersionData `json:"latest_version_data"`
}

// VersionData describes one downloadable package version.
type VersionData struct {
	DownloadURL *string `json:"download_url"`
	Version     *string `json:"version"`
}

// Verify validates the response shape for a package request and returns the
// download URL (relative to the registry base) and the parsed version.
// requested selects between the version_data and latest_version_data keys.
func (r *Response) Verify(requested bool) (string, *semver.Version, error) {
	if r.Code == nil {
		return "", nil, errors.New(errors.ErrCodeRegistryMissingField, "registry response has no 'code' key")
	}
	if *r.Code != 200 {
		return "", nil, errors.New(errors.ErrCodeRegistryHTTP, "registry responded with code %d: %s", *r.Code, r.Message)
	}
	if r.Data == nil {
		return "", nil, errors.New(errors.ErrCodeRegistryMissingField, "registry response has no 'data' key")
	}

	vd := r.Data.LatestVersionData
	key := "latest_version_data"
	if requested {
		vd = r.Data.VersionData
		key = "version_data"
	}
	if vd == nil {
		return "", nil, errors.New(errors.ErrCodeRegistryMissingField, "registry response has no '%s' key", key)
	}
	if vd.DownloadURL == nil {
		return "", nil, errors.New(errors.ErrCodeRegistryMissingField, "registry response has no 'download_url' key")
	}
	if vd.Version == nil {
		return "", nil, errors.New(errors.ErrCodeRegistryMissingField, "registry response has no 'version' key")
	}

	v, err := semver.NewVersion(*vd.Version)
	if err != nil {
		return "", nil, errors.Wrap(errors.ErrCodeVersionParse, err, "registry returned invalid version %q", *vd.Version)
	}
	return *vd.DownloadURL, v, nil
}
