// Package installer turns a resolved plan into packages on disk.
//
// [Installer.Install] walks a [resolver.Plan] as a dependency graph: each
// package waits for the packages it requires, then takes one of
// Options.Parallelism slots to fetch, verify and extract its artifact.
// Artifacts are looked up in the [cache.Cache] by their resolved digest
// before any download, and every downloaded byte is verified before it is
// cached or extracted. A failing package marks its dependents
// DEPENDENCY_FAILED and leaves unrelated branches running.
//
// Installed packages are recorded in a [Registry] kept next to them, which
// lets repeated installs skip up-to-date packages and lets [Check] report
// drift between a plan and the install directory.
package installer
