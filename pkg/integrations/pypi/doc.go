// Package pypi provides an HTTP client for the Python Package Index JSON API.
//
// # Overview
//
// [Client] implements both [deps.Provider] and [deps.ArtifactSource] against
// https://pypi.org/pypi or any server that speaks the same JSON API.
//
// # Usage
//
//	client := pypi.NewClient("", logger)
//	releases, err := client.FetchVersions(ctx, "fastapi")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, r := range releases {
//	    fmt.Println(r.Version, r.Requirements)
//	}
//
// # Versions
//
// Release keys are PEP 440 strings and are normalized on the way in, so
// "2.0rc1" resolves as 2.0.0-rc.1 and sorts before 2.0.0. Only the newest
// [Client.MaxVersions] releases are returned, because PyPI publishes
// requires_dist per release and each one costs a request. Those requests run
// concurrently with a small fixed limit.
//
// # Dependency Filtering
//
// Dependencies are extracted from requires_dist, filtering out:
//
//   - Optional extras (extra markers)
//   - Development dependencies (dev markers)
//   - Test dependencies (test markers)
//
// Other environment markers are not evaluated. Package names are normalized
// following PEP 503.
//
// # Artifacts
//
// [Client.FetchArtifact] prefers a py3-none-any wheel, then any wheel, then
// the sdist, and reports the sha256 PyPI publishes for that file as the
// expected digest.
package pypi
