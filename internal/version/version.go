package version

const Version = "0.3.1"

// Environment is the environment reported to Sentry.
const Environment = "production"
