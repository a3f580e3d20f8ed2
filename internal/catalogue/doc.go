// Package catalogue delivers the category and example catalogue to conversations.
//
// Repository serves the two collections cache-aside, NavigationStore remembers
// the page each conversation is browsing, and Engine combines both into the
// outcomes of the four conversation events: request categories, choose a
// category, select an index, and request the daily rule.
package catalogue
