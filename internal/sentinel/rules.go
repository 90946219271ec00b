package sentinel

import (
	"sort"
	"strconv"
	"strings"

	"github.com/servicedeck/servicedeck/pkg/models"
)

// insecurePortSeverity maps well-known plaintext or legacy protocols to a
// finding severity. Occupied ports not in the table still fire at low.
var insecurePortSeverity = map[uint16]struct {
	name     string
	severity models.SecuritySeverity
}{
	23:  {"telnet", models.SeverityCritical},
	512: {"rexec", models.SeverityCritical},
	513: {"rlogin", models.SeverityCritical},
	514: {"rsh", models.SeverityCritical},
	21:  {"ftp", models.SeverityHigh},
	69:  {"tftp", models.SeverityHigh},
	25:  {"smtp", models.SeverityMedium},
	80:  {"http", models.SeverityMedium},
	110: {"pop3", models.SeverityMedium},
	143: {"imap", models.SeverityMedium},
	161: {"snmp", models.SeverityMedium},
	389: {"ldap", models.SeverityMedium},
	445: {"smb", models.SeverityMedium},
}

// databasePorts are default listener ports of common database engines.
var databasePorts = map[uint16]string{
	1433:  "mssql",
	1521:  "oracle",
	3306:  "mysql",
	5432:  "postgresql",
	5984:  "couchdb",
	6379:  "redis",
	9200:  "elasticsearch",
	9300:  "elasticsearch",
	11211: "memcached",
	27017: "mongodb",
}

// systemPrefixes exempt platform-managed processes from the root-user rule.
var systemPrefixes = []string{
	"com.apple.",
	"systemd",
	"launchd",
	"kernel",
	"init",
}

type rule func(services []*models.Service, ports []models.PortRecord, rootPIDs map[uint32]bool) []models.SecurityIssue

// ruleSet is the fixed evaluation order. Each rule is pure and maps to
// exactly one category.
var ruleSet = []rule{
	ruleInsecurePorts,
	rulePublicDatabases,
	ruleMissingAuth,
	ruleRootServices,
	ruleStaleAutostart,
}

func ruleInsecurePorts(_ []*models.Service, ports []models.PortRecord, _ map[uint32]bool) []models.SecurityIssue {
	var issues []models.SecurityIssue
	// One finding per port: a listener bound on both tcp and udp must not
	// produce two issues with the same id.
	seen := make(map[uint16]bool)
	for _, p := range ports {
		if p.Status != models.PortOccupied || seen[p.Port] {
			continue
		}
		entry, known := insecurePortSeverity[p.Port]
		if !known {
			continue
		}
		seen[p.Port] = true
		port := p.Port
		issues = append(issues, models.SecurityIssue{
			ID:          "port-" + strconv.Itoa(int(port)),
			Category:    models.CategoryUnencryptedConnection,
			Severity:    entry.severity,
			Title:       strings.ToUpper(entry.name) + " port open",
			Description: "Port " + strconv.Itoa(int(port)) + " (" + entry.name + ") transmits data without encryption.",
			Recommendation: "Disable the " + entry.name + " service or replace it with an " +
				"encrypted alternative (ssh, https, imaps).",
			Port:        &port,
			ServiceName: p.ProcessName,
		})
	}
	return issues
}

func rulePublicDatabases(_ []*models.Service, ports []models.PortRecord, _ map[uint32]bool) []models.SecurityIssue {
	var issues []models.SecurityIssue
	seen := make(map[uint16]bool)
	for _, p := range ports {
		engine, isDB := databasePorts[p.Port]
		if !isDB || !p.Wildcard() || seen[p.Port] {
			continue
		}
		seen[p.Port] = true
		port := p.Port
		issues = append(issues, models.SecurityIssue{
			ID:          "public-db-" + strconv.Itoa(int(port)),
			Category:    models.CategoryPublicExposure,
			Severity:    models.SeverityCritical,
			Title:       "Database port exposed on all interfaces",
			Description: "The " + engine + " port " + strconv.Itoa(int(port)) + " is bound to a wildcard address and reachable from the network.",
			Recommendation: "Bind " + engine + " to 127.0.0.1 or restrict access with a " +
				"firewall rule.",
			Port:        &port,
			ServiceName: p.ProcessName,
		})
	}
	return issues
}

// ruleMissingAuth flags data stores that commonly ship without
// authentication, matched by process name or default port.
func ruleMissingAuth(services []*models.Service, ports []models.PortRecord, _ map[uint32]bool) []models.SecurityIssue {
	var issues []models.SecurityIssue
	flag := func(svcID, name string, port *uint16) models.SecurityIssue {
		return models.SecurityIssue{
			ID:          "auth-" + name + "-" + svcID,
			ServiceID:   svcID,
			ServiceName: name,
			Category:    models.CategoryMissingAuthentication,
			Severity:    models.SeverityHigh,
			Title:       capitalize(name) + " may run without authentication",
			Description: name + " accepts connections without credentials in its default configuration.",
			Recommendation: "Enable authentication (requirepass, --auth, or the engine's " +
				"security config) and verify it is enforced.",
			Port: port,
		}
	}

	for _, svc := range services {
		if svc.Status != models.StatusRunning {
			continue
		}
		lower := strings.ToLower(svc.Name)
		var engine string
		switch {
		case strings.Contains(lower, "redis"):
			engine = "redis"
		case strings.Contains(lower, "mongod"), strings.Contains(lower, "mongodb"):
			engine = "mongodb"
		case strings.Contains(lower, "elasticsearch"):
			engine = "elasticsearch"
		default:
			continue
		}
		var port *uint16
		if len(svc.Ports) > 0 {
			p := svc.Ports[0]
			port = &p
		}
		issues = append(issues, flag(svc.ID, engine, port))
	}

	// Catch listeners no service record claims.
	claimed := make(map[uint16]bool)
	for _, svc := range services {
		for _, p := range svc.Ports {
			claimed[p] = true
		}
	}
	seen := make(map[uint16]bool)
	for _, p := range ports {
		var engine string
		switch p.Port {
		case 6379:
			engine = "redis"
		case 27017:
			engine = "mongodb"
		case 9200:
			engine = "elasticsearch"
		default:
			continue
		}
		if claimed[p.Port] || p.Status != models.PortOccupied || seen[p.Port] {
			continue
		}
		seen[p.Port] = true
		port := p.Port
		issues = append(issues, flag("port-"+strconv.Itoa(int(port)), engine, &port))
	}
	return issues
}

func ruleRootServices(services []*models.Service, _ []models.PortRecord, rootPIDs map[uint32]bool) []models.SecurityIssue {
	var issues []models.SecurityIssue
	for _, svc := range services {
		if svc.Status != models.StatusRunning || svc.PID == nil || !rootPIDs[*svc.PID] {
			continue
		}
		if isSystemService(svc.Name) {
			continue
		}
		issues = append(issues, models.SecurityIssue{
			ID:          "root-" + svc.ID,
			ServiceID:   svc.ID,
			ServiceName: svc.Name,
			Category:    models.CategoryPrivilegeEscalation,
			Severity:    models.SeverityMedium,
			Title:       "Service runs as root",
			Description: svc.Name + " runs with root privileges; a compromise grants full host access.",
			Recommendation: "Run the service under a dedicated unprivileged account and " +
				"grant specific capabilities where needed.",
		})
	}
	return issues
}

func ruleStaleAutostart(services []*models.Service, _ []models.PortRecord, _ map[uint32]bool) []models.SecurityIssue {
	var issues []models.SecurityIssue
	for _, svc := range services {
		if !svc.AutoStart || svc.Status == models.StatusRunning {
			continue
		}
		issues = append(issues, models.SecurityIssue{
			ID:          "autostart-" + svc.ID,
			ServiceID:   svc.ID,
			ServiceName: svc.Name,
			Category:    models.CategoryInsecureConfiguration,
			Severity:    models.SeverityLow,
			Title:       "Autostart service is not running",
			Description: svc.Name + " is configured to start automatically but is currently " + string(svc.Status) + ".",
			Recommendation: "Start the service if it is needed, or disable autostart to " +
				"reduce the attack surface.",
		})
	}
	return issues
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func isSystemService(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range systemPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// evaluate runs the full rule set and sorts findings by severity rank then
// id, so repeated scans of unchanged input produce identical output.
func evaluate(services []*models.Service, ports []models.PortRecord, rootPIDs map[uint32]bool) []models.SecurityIssue {
	var issues []models.SecurityIssue
	for _, r := range ruleSet {
		issues = append(issues, r(services, ports, rootPIDs)...)
	}
	sort.Slice(issues, func(i, j int) bool {
		ri, rj := models.SeverityRank(issues[i].Severity), models.SeverityRank(issues[j].Severity)
		if ri != rj {
			return ri < rj
		}
		return issues[i].ID < issues[j].ID
	})
	return issues
}
