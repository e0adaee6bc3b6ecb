// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package api exposes the realtime service over HTTP.

Routes:

	GET  /ws                             WebSocket upgrade (origin checked)
	GET  /metrics                        Prometheus exposition
	GET  /api/v1/health/live             liveness
	GET  /api/v1/health/ready            readiness (registered checks)
	GET  /api/v1/realtime/status         connection, room and party counts
	POST /api/v1/parties                 create a watch party
	GET  /api/v1/parties                 list public parties
	POST /api/v1/parties/join            join by party_id or invite_code
	GET  /api/v1/parties/{id}            party snapshot
	POST /api/v1/parties/{id}/leave      leave
	POST /api/v1/parties/{id}/end        end (host only)
	POST /api/v1/parties/{id}/control    play, pause or seek
	GET  /api/v1/messages/unread         unread direct message counts
	GET  /api/v1/messages/contacts       users the caller has messaged with
	GET  /api/v1/messages/{user_id}      direct message history
	POST /api/v1/messages/{user_id}      send a direct message

Party and message routes require an identity (see IdentityResolver). Every
REST response uses the APIResponse envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
	{"success": false, "error": {"code": "NOT_FOUND", "message": "Party not found"}, "meta": {...}}

Watch party errors map to 400 (invalid input), 403 (not a member, not
authorized), 404 (unknown party) and 409 (full, ended, invalid transition).
*/
package api
