package ir

// EngineVersion is the sidesync engine version.
const EngineVersion = "0.1.0"
