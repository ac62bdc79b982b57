// Package storage is the byte storage boundary used by pipeline tasks that
// persist or load data outside a session.
//
// Backends register themselves with RegisterFactory from an init function
// and are selected by Config.Provider:
//
//   - storage/local: local filesystem
//   - storage/s3: Amazon S3 and S3-compatible storage
//   - storage/azblob: Azure Blob Storage
//   - memory: in-process, built in
//
// WriteJSON and ReadJSON build dag executables over any backend:
//
//	storage:
//	  provider: "s3"
//	  bucket: "pipeline-results"
//	  region: "eu-west-1"
package storage
