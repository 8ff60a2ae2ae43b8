package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers
// return these (optionally wrapped) so services can translate them into domain
// errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in store
// - ErrConflict: concurrent write collided (unique violation, version check)
// - ErrSerialization: transaction lost a serialization/deadlock race; the
//   caller may retry the whole unit of work
// - ErrUnavailable: storage temporarily unreachable
//
// For rule rejections (forbidden fields, illegal transitions), use the
// lifecycle package's Rejection type; for request-shape problems use
// pkg/domain-errors directly.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrSerialization = errors.New("serialization failure")
	ErrUnavailable   = errors.New("unavailable")
)
