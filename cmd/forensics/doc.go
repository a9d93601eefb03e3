// Command forensics packages media into fingerprinted rendition sets and
// attributes leaked copies from the command line.
//
// It reads the same environment as the server and works directly on the
// rendition directory and database, so it can run beside a live server.
//
// Usage:
//
//	forensics <command> [arguments]
//
// Commands:
//
//	package <media-id> <source> [layout]
//	        Probe the source, compose the A and B renditions (or the single
//	        legacy rendition when FORENSIC_ENABLED=false), verify them and
//	        publish atomically. Any previously published set is kept until
//	        the new one is complete.
//
//	analyze [-layout v1|v2] [-samples N] [-offset N] [-auto-extend] <media-id> <file>
//	        Sample the leaked file, recover its A/B sequence and print the
//	        ranked candidate report as JSON.
//
//	identity <user-id> <media-id>
//	        Print the viewer's fingerprint identity and the variants it
//	        expects for the first segments.
//
//	status <media-id>
//	        Show the published manifest and the number of identities issued.
//
// Environment:
//
//	FORENSIC_SECRET  - Fingerprint secret (APP_SECRET is used as a fallback)
//	RENDITION_DIR    - Published rendition sets (default: /cache/renditions)
//	DATABASE_DIR     - SQLite database directory (default: /database)
//	DATABASE_URL     - PostgreSQL connection string; overrides DATABASE_DIR
//	FFMPEG_PATH      - ffmpeg binary (default: ffmpeg)
//	FFPROBE_PATH     - ffprobe binary (default: ffprobe)
package main
