// Package notifier delivers outbound text messages.
//
// # Senders
//
// TwilioSender posts to the Twilio-compatible Messages REST endpoint using
// HTTP basic auth. LogSender only logs, for dry runs and local development.
// Both implement Sender, so the broadcast dispatcher never depends on a
// specific provider.
//
// # Errors
//
// A non-2xx provider response is returned as *ProviderError carrying the
// provider's numeric code and message. Transport failures are returned wrapped.
package notifier
