// Package workload implements installation and reclamation of workload packs
// shared by several SDK feature bands under one install root. Pack content
// lives under the packs root, while per-band installation records are empty
// marker files under metadata/workloads; a record's existence is the only
// durable fact that a band still needs a pack or workload. Installer places
// content and writes records as one try/rollback transaction, and
// GarbageCollector reconciles the records against the live bands by walking
// the record directories. Nothing here takes a lock: callers that may overlap
// mutating operations on one install root acquire RootLock first.
package workload
