package ir

// EngineVersion is the tyuo release version, reported by the CLI and the
// health endpoint.
const EngineVersion = "0.1.0"
