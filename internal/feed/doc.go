// Package feed downloads workload pack archives from a NuGet v3 flat-container
// feed or a local directory and extracts them for the installer.
package feed
