// Package gitlab implements the paginated GitLab REST API client used by
// the harvester.
//
// The client authenticates with a PRIVATE-TOKEN header, follows the
// page/X-Next-Page cursor protocol, retries transient failures with
// exponential backoff while honoring server rate-limit headers, and treats
// authentication rejections as fatal.
package gitlab
