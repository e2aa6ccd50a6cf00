/*
The sync package implements dbkernel's incremental sync of a local project
into a directory on the cluster.

A sync runs in stages, and only the last one persists anything locally:
1) Scan -- Walk the project, skipping excluded paths, and hash every file.
   Size limits are enforced here, before anything is sent over the network.
2) Diff -- Compare the scan against the cache of what was last synced. Files
   are compared by content hash, so touching a file doesn't resync it.
3) Archive -- Package the added and modified files into a tar.gz.
4) Upload -- Stage the archive in remote storage, in chunks no larger than the
   storage accepts in one request.
5) Materialize -- Run Python in the execution context that removes deleted
   files, extracts the archive into the session's directory, and puts that
   directory on sys.path.
6) Commit -- Record the scan as the new cache.

If any stage fails the cache is left as it was, so the next sync retries the
same changes.
*/
package sync
