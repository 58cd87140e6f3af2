package rules

// defaultFullPaths are requested by scanners probing for well-known files.
var defaultFullPaths = []string{
	// PHP / WordPress
	"/index.php", "/wp-login.php", "/xmlrpc.php", "/wp-cron.php", "/wp-config.php",
	"/wp-admin/admin-ajax.php", "/wp-admin/admin-post.php", "/admin/post.php", "/admin/login.php",

	// Git
	"/.gitignore", "/.dockerignore", "/.gitattributes", "/.gitmodules",
	"/.git/head", "/.git/config", "/.git/index", "/.git/logs/head", "/.git/logs/refs/heads/master",

	// GitHub
	"/.github/workflows", "/.github/issue_template", "/.github/pull_request_template",

	// Environment files
	"/.env", "/.env.example", "/.env.local", "/.env.development", "/.env.test", "/.env.production",

	// Runtime config
	"/.config/aspnetcore-runtime-config.json", "/.config/aspnetcore-runtime-config.xml",

	// Editors
	"/.vs/vsworkspacestate.json",
	"/.idea/workspace.xml", "/.idea/misc.xml",
	"/.vscode/settings.json", "/.vscode/launch.json", "/.vscode/tasks.json", "/.vscode/extensions.json",

	// Docker
	"/dockerfile", "/compose.yml", "/docker-compose.yml", "/docker-compose.ci-build.yml",

	// NPM
	"/package.json", "/package-lock.json",

	// Settings
	"/appsettings.json", "/appsettings.development.json", "/appsettings.production.json", "/web.config",

	// Logs
	"/log.txt", "/logs.txt", "/log.log", "/logs.log",

	// Backups
	"/backup.zip", "/backup.tar", "/backup.tar.gz", "/backup.tgz", "/backup.sql", "/db.sql", "/database.sql", "/dump.sql", "/old.sql",
	"/backup/database.sql", "/backup/db.sql", "/backup/dump.sql", "/backup/backup.sql", "/backup/old.sql",

	"/readme.md",
}

// defaultPartialURLs are url-encoded fragments of SQL injection and directory
// traversal attempts.
var defaultPartialURLs = []string{
	// SQL injection
	"select(", "select+", "when(", "+when+", "cast(", "concat(", "char(",
	"'(", "%22(", "('", "(%22", "((",
	"')", "%22)", ")'", ")%22", "))",
	"%22=%22", "'='",
	"%22or%22", "'or'", "+or+",
	"%22and%22", "'and'", "+and+",

	// Directory traversal
	"../", "..%2f", "..%5c", "..%c0%af", "..%c1%9c", "..%252f", "..%255c",
}

var defaultBadSuffixes = []string{
	// Server-side pages
	".asp", ".aspx", ".php",

	// Shell and executables
	".bat", ".sh", ".cmd", ".ps1", ".cgi", ".exe", ".dll", ".so",

	// Source code
	".py", ".pl", ".rb", ".cs", ".go", ".cpp", ".c", ".java", ".sln", ".csproj",

	// Databases
	".sql", ".mdb", ".sqlite", ".sqlite3", ".db", ".db3", ".s3db", ".sl3",

	// Packages
	".rpm", ".msi", ".dmg", ".pkg", ".app",

	// Config
	".yml", ".env", ".config", ".owa", ".htaccess", ".htpasswd",

	// Logs and backups
	".log", ".bak", ".backup", ".old",
}

// defaultBadPartialPaths are CMS and framework directories that scanners walk.
var defaultBadPartialPaths = []string{
	"/php/", "/wp/", "/wordpress/", "/wp-content/", "/wp-includes/", "/wp-admin/",
	"/magento/", "/magento_version/", "/magmi/", "/woocommerce/", "/shopify/", "/prestashop/", "/drupal/", "/sitecore/",
}
