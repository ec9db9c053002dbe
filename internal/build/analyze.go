package build

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Project types.
const (
	TypeWeb       = "web"
	TypeAPI       = "api"
	TypeMobile    = "mobile"
	TypeBackend   = "backend"
	TypeFrontend  = "frontend"
	TypeFullstack = "fullstack"
)

type keywordSet struct {
	name     string
	keywords []string
}

var (
	apiKeywords    = []string{"api", "rest", "graphql", "endpoint", "servicio web"}
	mobileKeywords = []string{"móvil", "mobile", "android", "ios", "app"}
	pythonKeywords = []string{"python", "flask", "django", "fastapi"}

	frameworkKeywords = []keywordSet{
		{"react", []string{"react", "reactjs"}},
		{"vue", []string{"vue", "vuejs"}},
		{"angular", []string{"angular", "angularjs"}},
		{"next.js", []string{"next", "nextjs", "next.js"}},
		{"flask", []string{"flask"}},
		{"django", []string{"django"}},
		{"express", []string{"express", "node", "nodejs"}},
	}

	databaseKeywords = []keywordSet{
		{"postgresql", []string{"postgres", "postgresql", "psql"}},
		{"mysql", []string{"mysql", "mariadb"}},
		{"mongodb", []string{"mongo", "mongodb", "nosql"}},
		{"sqlite", []string{"sqlite", "sql lite"}},
	}
)

// Analysis is the outcome of reading a project description.
type Analysis struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Stack Stack  `json:"tech_stack"`
}

// Analyze detects project type and stack from a free-form description using
// substring matching on the lowercased text.
func Analyze(description string) Analysis {
	text := strings.ToLower(description)

	projectType := TypeWeb
	if containsAny(text, apiKeywords) {
		projectType = TypeAPI
	}
	if containsAny(text, mobileKeywords) {
		projectType = TypeMobile
	}

	stack := Stack{Language: "javascript", Framework: "react"}
	if containsAny(text, pythonKeywords) {
		stack.Language = "python"
	}
	for _, fw := range frameworkKeywords {
		if !containsAny(text, fw.keywords) {
			continue
		}
		stack.Framework = fw.name
		switch fw.name {
		case "flask", "django":
			stack.Language = "python"
		case "express":
			stack.Language = "javascript"
		}
		break
	}
	for _, db := range databaseKeywords {
		if containsAny(text, db.keywords) {
			stack.Database = db.name
			break
		}
	}

	return Analysis{Name: ProjectName(description), Type: projectType, Stack: stack}
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

var (
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:llamad[oa]|nombrad[oa]|titulad[oa])\s+["']?([a-zA-Z0-9_\-]+)`),
		regexp.MustCompile(`(?i)proyecto\s+["']?([a-zA-Z0-9_\-]+)`),
		regexp.MustCompile(`(?i)aplicaci[oó]n\s+["']?([a-zA-Z0-9_\-]+)`),
		regexp.MustCompile(`(?i)app\s+["']?([a-zA-Z0-9_\-]+)`),
	}
	nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// ProjectName picks a name from phrases like "llamado X", otherwise slugs the
// first three words, otherwise generates one.
func ProjectName(description string) string {
	for _, re := range namePatterns {
		if m := re.FindStringSubmatch(description); m != nil {
			return m[1]
		}
	}

	words := strings.Fields(description)
	if len(words) > 3 {
		words = words[:3]
	}
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if clean := strings.ToLower(nonAlnum.ReplaceAllString(w, "")); clean != "" {
			parts = append(parts, clean)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "-")
	}
	return "proyecto-" + uuid.NewString()[:8]
}

// PlanTasks builds the development plan for an analysed project. Each task's
// Time is its upper bound scaled by factor.
func PlanTasks(a Analysis, factor float64) Plan {
	if factor <= 0 {
		factor = 1
	}
	tasks := []Task{
		{
			ID: "setup", Title: "Configuración del entorno",
			Description: "Preparar el entorno de desarrollo y estructura base",
			MinMinutes:  5, MaxMinutes: 10, Agent: "architect",
			Subtasks: []string{"Crear estructura de directorios", "Configurar archivos base", "Inicializar el proyecto"},
		},
		{
			ID: "dependencies", Title: "Instalación de dependencias",
			Description: "Instalar y configurar las bibliotecas necesarias",
			MinMinutes:  5, MaxMinutes: 15, Agent: "developer",
			Subtasks: []string{"Instalar dependencias core", "Configurar sistema de paquetes", "Validar instalación"},
		},
	}
	switch a.Type {
	case TypeWeb, TypeFrontend, TypeFullstack:
		tasks = append(tasks, Task{
			ID: "ui_components", Title: "Implementación de componentes UI",
			Description: "Crear componentes visuales reutilizables",
			MinMinutes:  10, MaxMinutes: 20, Agent: "developer",
			Subtasks: []string{"Diseñar componentes base", "Implementar sistema de navegación", "Crear estilos y temas"},
		})
	}
	if a.Stack.Database != "" {
		tasks = append(tasks, Task{
			ID: "database", Title: "Configuración de base de datos",
			Description: "Implementar modelos y conexión a base de datos",
			MinMinutes:  10, MaxMinutes: 15, Agent: "developer",
			Subtasks: []string{"Definir modelos/esquemas", "Configurar conexión a BD", "Implementar operaciones CRUD"},
		})
	}
	switch a.Type {
	case TypeAPI, TypeBackend, TypeFullstack:
		tasks = append(tasks, Task{
			ID: "endpoints", Title: "Implementación de endpoints",
			Description: "Crear rutas y controladores para la API",
			MinMinutes:  15, MaxMinutes: 25, Agent: "developer",
			Subtasks: []string{"Definir estructura de rutas", "Implementar controladores", "Añadir validación y manejo de errores"},
		})
	}
	tasks = append(tasks, Task{
		ID: "testing", Title: "Pruebas y validación",
		Description: "Verificar el funcionamiento correcto de la aplicación",
		MinMinutes:  5, MaxMinutes: 10, Agent: "testing",
		Subtasks: []string{"Probar funcionalidad básica", "Validar integración de componentes", "Verificar requisitos cumplidos"},
	})

	total := 0
	for i := range tasks {
		tasks[i].Time = int(float64(tasks[i].MaxMinutes)*factor + 0.5)
		tasks[i].Status = TaskPending
		total += tasks[i].Time
	}
	return Plan{Tasks: tasks, EstimatedTime: total, Summary: PlanMarkdown(a, tasks, PlanFiles(a.Stack))}
}

// PlanMarkdown renders the plan message shown to the user.
func PlanMarkdown(a Analysis, tasks []Task, files []string) string {
	minTime, maxTime := 0, 0
	for _, t := range tasks {
		minTime += t.MinMinutes
		maxTime += t.MaxMinutes
	}

	var b strings.Builder
	b.WriteString("## 📝 Plan de Desarrollo Detallado\n\n### Detalles del proyecto\n")
	fmt.Fprintf(&b, "- **Tipo de aplicación:** %s\n", a.Type)
	fmt.Fprintf(&b, "- **Lenguaje principal:** %s\n", orUnspecified(a.Stack.Language))
	fmt.Fprintf(&b, "- **Framework:** %s\n", orUnspecified(a.Stack.Framework))
	fmt.Fprintf(&b, "- **Total de archivos a generar:** %d\n", len(files))
	fmt.Fprintf(&b, "- **Tiempo estimado:** %d-%d minutos\n\n", minTime, maxTime)

	b.WriteString("### Estructura de archivos principales\n")
	shown := 0
	for _, f := range files {
		if shown == 10 {
			break
		}
		if isSourceFile(f) {
			fmt.Fprintf(&b, "- `%s`\n", f)
			shown++
		}
	}
	if len(files) > 10 {
		fmt.Fprintf(&b, "- ... y %d archivos más\n", len(files)-10)
	}

	b.WriteString("\n### Tareas de desarrollo\n")
	for i, t := range tasks {
		fmt.Fprintf(&b, "#### %d. %s\n- %s\n- Tiempo estimado: %d-%d minutos\n- Subtareas: %s\n",
			i+1, t.Title, t.Description, t.MinMinutes, t.MaxMinutes, strings.Join(t.Subtasks, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func orUnspecified(v string) string {
	if v == "" {
		return "No especificado"
	}
	return v
}

func isSourceFile(name string) bool {
	for _, ext := range []string{".py", ".js", ".jsx", ".ts", ".tsx", ".html", ".css"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func analysisMessage(a Analysis) string {
	db := a.Stack.Database
	if db == "" {
		db = "Ninguna"
	}
	return fmt.Sprintf("## 📊 Análisis de Requisitos\n\n"+
		"He analizado tu solicitud y he identificado los siguientes elementos clave:\n\n"+
		"**Tipo de Proyecto:** %s\n"+
		"**Tecnologías Principales:**\n"+
		"- Lenguaje: %s\n"+
		"- Framework: %s\n"+
		"- Base de datos: %s\n\n"+
		"Ahora voy a crear un plan detallado para el desarrollo.",
		a.Type, a.Stack.Language, a.Stack.Framework, db)
}

func structureMessage(files []string) string {
	var b strings.Builder
	b.WriteString("## 📁 Estructura del Proyecto\n\nVoy a crear la siguiente estructura de archivos:\n\n```\n")
	for _, f := range files {
		b.WriteString(f)
		b.WriteString("\n")
	}
	b.WriteString("```")
	return b.String()
}

func completionMessage(j Job) string {
	var b strings.Builder
	b.WriteString("# ¡Proyecto completado exitosamente! 🎉\n\n")
	fmt.Fprintf(&b, "He terminado de construir **%s**. ", j.Name)
	fmt.Fprintf(&b, "Se generaron %d archivos en el espacio de trabajo.\n\n", len(j.Files))
	if j.TechStack != nil {
		fmt.Fprintf(&b, "**Stack:** %s / %s\n\n", j.TechStack.Language, j.TechStack.Framework)
	}
	if cmd := runCommand(j.TechStack); cmd != "" {
		fmt.Fprintf(&b, "Para ejecutar el proyecto:\n\n```\n%s\n```\n\n", cmd)
	}
	b.WriteString("Puedes revisar los archivos en el explorador y pedirme cambios adicionales cuando quieras.")
	return b.String()
}

// PlanFiles returns the files generated for a stack.
func PlanFiles(s Stack) []string {
	switch s.Framework {
	case "react":
		return []string{
			"package.json", "README.md",
			"public/index.html", "public/favicon.ico",
			"src/index.js", "src/App.js", "src/App.css",
			"src/components/Header.js", "src/components/Footer.js",
			"src/pages/Home.js", "src/pages/About.js",
		}
	case "flask":
		return []string{
			"app.py", "config.py", "requirements.txt", "README.md",
			"static/css/style.css", "static/js/main.js",
			"templates/base.html", "templates/index.html", "templates/about.html",
			"models/__init__.py", "models/user.py",
			"routes/__init__.py", "routes/main.py",
		}
	case "express":
		return []string{"package.json", "README.md", "server.js", "routes/index.js", "public/index.html"}
	}
	if s.Language == "python" {
		return []string{"requirements.txt", "README.md", "main.py", "app/__init__.py"}
	}
	return []string{"package.json", "README.md", "index.html", "src/main.js", "src/styles.css"}
}

func installCommand(s *Stack) string {
	if s == nil {
		return ""
	}
	switch s.Framework {
	case "react", "vue", "angular", "next.js", "express":
		return "npm install"
	}
	if s.Language == "python" {
		return "pip install -r requirements.txt"
	}
	return ""
}

func runCommand(s *Stack) string {
	if s == nil {
		return ""
	}
	switch s.Framework {
	case "react", "vue", "angular", "next.js":
		return "npm install\nnpm start"
	case "express":
		return "npm install\nnode server.js"
	case "flask":
		return "pip install -r requirements.txt\npython app.py"
	}
	if s.Language == "python" {
		return "pip install -r requirements.txt\npython main.py"
	}
	return ""
}

// FileContent returns starter content for a generated file.
func FileContent(path string, j Job) string {
	title := j.Name
	base := path[strings.LastIndex(path, "/")+1:]
	switch {
	case base == "README.md":
		return fmt.Sprintf("# %s\n\n%s\n", title, j.Description)
	case base == "package.json":
		return fmt.Sprintf("{\n  \"name\": %q,\n  \"version\": \"0.1.0\",\n  \"private\": true\n}\n", title)
	case base == "requirements.txt":
		if j.TechStack != nil && j.TechStack.Framework == "flask" {
			return "flask\n"
		}
		return ""
	case base == "favicon.ico":
		return ""
	case strings.HasSuffix(base, ".html"):
		return fmt.Sprintf("<!DOCTYPE html>\n<html lang=\"es\">\n<head>\n  <meta charset=\"utf-8\">\n  <title>%s</title>\n</head>\n<body>\n  <div id=\"root\"></div>\n</body>\n</html>\n", title)
	case strings.HasSuffix(base, ".css"):
		return "body {\n  margin: 0;\n  font-family: sans-serif;\n}\n"
	case strings.HasSuffix(base, ".py"):
		return fmt.Sprintf("# %s: %s\n", title, path)
	case strings.HasSuffix(base, ".js"):
		return fmt.Sprintf("// %s: %s\n", title, path)
	}
	return ""
}
