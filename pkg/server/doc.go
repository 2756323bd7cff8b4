/*
Package server is the HTTP surface of the broker: routing, key-phrase
extraction, request validation, orchestration of the store and the
broadcaster, and response shaping.

Every JSON endpoint answers with the same envelope:

	{ "success": bool, "status_code": u16, "reason"?: string, "data"?: string }

where data, when present, is itself a JSON document serialized to a string,
and reason is the error-code name on failure. Protected endpoints read the
plaintext key phrase from the raw Authorization header (no scheme prefix).

File uploads arrive as multipart/form-data and downloads leave as raw bodies;
everything else is JSON. SSE notifications of committed mutations are
published fire-and-forget so a slow subscriber never delays a response.
*/
package server
