/*
Package minecraft builds Minecraft server console commands and runs them over an RCON executor,
such as an *rcon.Session or an *rcon.Redialer.

Each operation formats a single command line, sends it, and interprets the reply text. Commands that
change server state are expected to succeed silently on the servers this package was written
against; newer servers answer most of them with a confirmation sentence. By default those replies
are ignored. With [Options.Strict] set, any reply to such a command is returned as an
[*UnexpectedResponseError].

Query operations ([Server.List], [Server.BanList], [Server.BanIPList], [Server.Whitelist]) parse
the listing that follows the first colon of the reply, see [ParseListing].

The package does not know what commands do on the server. Arguments are only checked for
characters that would split or end a command line.
*/
package minecraft
