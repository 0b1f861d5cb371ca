package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrorInvalidContact marks a raw external contact record that failed
// normalization. Callers skip the record and keep processing the batch.
var ErrorInvalidContact = errors.New("invalid contact record")

// ErrorMergeConflict marks a re-parenting step that would violate a data
// invariant the merge executor cannot resolve with its dedup rules.
var ErrorMergeConflict = errors.New("merge conflict")

// ErrorStorageUnavailable marks a failure of the transaction layer itself
// (connection lost, deadline exceeded). Unlike the per-cluster errors above
// it aborts the remaining batch, since progress cannot be guaranteed.
var ErrorStorageUnavailable = errors.New("storage unavailable")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
