/*
	Project: StudyRelay - internal relay for the study planner backend.

	Trusted backend jobs call the relay over HTTP to trigger side effects (the welcome email for now).
	Every call is signed with a pre-shared HMAC secret; see core/reqauth.

	Binaries:
	- apps/api:   the HTTP API (echo)
	- apps/admin: migrations, nonce purging, request signing helpers

TODO: key ids in a header so the HMAC secret can be rotated without a synchronized redeploy.
*/
package studyrelay
