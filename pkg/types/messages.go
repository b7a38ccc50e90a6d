package types

// Client -> Server (websocket text frames, JSON)
// queue:next:
//   groupId?: string    // absent or unknown -> default group
//   counterId: string   // must belong to the group, else ignored
//
// queue:reset:
//   groupId?: string
//
// queue:setStart:
//   groupId?: string
//   startNumber: number | string   // finite, >= 1, floored; else ignored
//
// Only connections opened with a valid staff token may mutate. Everything
// else is dropped without a reply.

// Server -> Client
// queue:state:
//   version: number      // bumps once per accepted mutation
//   state:
//     defaultGroup: string
//     groups: [{
//       id: string
//       nextTicket: number
//       counters: { [counterId]: number | null }   // declared order
//       lastCall: { ticket: number, counterId: string, at: RFC 3339 } | null
//     }]
//
// Sent to every client after each accepted mutation, and once to a client
// right after it connects.

// Handshake
//   GET /ws                        -> viewer
//   Authorization: Bearer <token>  -> staff
//   /ws?token=<token>              -> staff (browsers)
//   bad token                      -> 401, no upgrade
//
// POST /api/auth/login { pin } -> { ok, token, expiresAt } | 400 | 401 | 429
