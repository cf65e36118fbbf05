package textproc

var stopWords = setOf(
	"the", "a", "an", "is", "are", "was", "were", "be", "been", "being",
	"have", "has", "had", "do", "does", "did", "will", "would", "could", "should",
	"may", "might", "must", "shall", "can", "cannot",
	"this", "that", "these", "those", "there", "here",
	"and", "or", "but", "if", "then", "else", "so", "than", "too", "very",
	"for", "from", "with", "about", "into", "onto", "over", "under", "after", "before",
	"to", "of", "in", "on", "at", "by", "as", "up", "out", "off",
	"it", "its", "which", "who", "whom", "what", "when", "where", "how", "why",
	"i", "me", "my", "we", "our", "you", "your", "he", "she", "him", "her", "they", "them", "their",
	"not", "no", "yes", "all", "any", "some", "just", "also", "only", "again",
	"get", "got", "am", "im", "dont", "doesnt", "didnt", "cant", "wont",
)

var technicalTerms = setOf(
	"api", "endpoint", "server", "client", "database", "db", "sql", "query",
	"http", "https", "json", "xml", "html", "css", "javascript", "js", "typescript",
	"error", "exception", "stack", "trace", "stacktrace", "timeout", "latency",
	"config", "configuration", "deploy", "deployment", "build", "version",
	"cache", "cookie", "token", "oauth", "sso", "ssl", "tls", "certificate",
	"dns", "proxy", "firewall", "network", "socket", "websocket", "cors",
	"browser", "chrome", "firefox", "safari", "edge",
	"null", "undefined", "nan", "typeerror", "referenceerror", "syntaxerror",
	"console", "log", "logs", "debug", "memory", "cpu", "crash",
	"integration", "webhook", "payload", "request", "response", "status",
	"migration", "schema", "index", "sync", "export", "import", "upload",
)

var topicOrder = []string{"error", "data", "auth", "ui", "api"}

var topicGroups = map[string]map[string]struct{}{
	"error": setOf("error", "errors", "exception", "fail", "failed", "failure", "failing",
		"crash", "crashed", "bug", "broken", "issue", "problem", "fault"),
	"data": setOf("data", "database", "record", "records", "table", "query", "sql",
		"export", "import", "report", "reports", "field", "fields", "sync"),
	"auth": setOf("login", "logout", "signin", "password", "auth", "authentication",
		"authorization", "token", "session", "permission", "permissions", "access", "sso", "mfa"),
	"ui": setOf("button", "page", "screen", "display", "click", "dashboard", "layout",
		"form", "view", "modal", "menu", "tab", "widget"),
	"api": setOf("api", "endpoint", "request", "response", "http", "rest", "webhook",
		"integration", "payload", "graphql", "rpc"),
}

// IsStopWord reports whether tok carries too little information to keep.
func IsStopWord(tok string) bool {
	_, ok := stopWords[tok]
	return ok
}

// IsTechnicalTerm reports whether tok is on the technical vocabulary list.
func IsTechnicalTerm(tok string) bool {
	_, ok := technicalTerms[tok]
	return ok
}

func setOf(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
