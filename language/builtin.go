package language

// Canonical language identifiers
const (
	JavaScript = "javascript"
	TypeScript = "typescript"
	Python     = "python"
	Java       = "java"
	Go         = "go"
	Rust       = "rust"
	C          = "c"
	CPP        = "cpp"
)

func npmOps() *PackageOps {
	return &PackageOps{
		InstallCommand: "npm install",
		RemoveCommand:  "npm uninstall",
		ListCommand:    "npm ls --json --depth=0",
		InitCommand:    "npm init -y",
		ListFormat:     ListFormatJSONDeps,
		PackageFile:    "package.json",
	}
}

// builtinLanguages returns the built-in language table. Each call
// returns a fresh map so override merging never aliases shared state.
func builtinLanguages() map[string]Config {
	return map[string]Config{
		JavaScript: {
			Name:       JavaScript,
			Image:      "node:20-alpine",
			RunCommand: "node main.js",
			FileName:   "main.js",
			Extension:  ".js",
			Packages:   npmOps(),
		},
		TypeScript: {
			Name:          TypeScript,
			Image:         "node:20-alpine",
			RunCommand:    "npx --yes tsx main.ts",
			FileName:      "main.ts",
			Extension:     ".ts",
			SetupCommands: []string{"npm install -g tsx"},
			Packages:      npmOps(),
		},
		Python: {
			Name:  Python,
			Image: "python:3.11-slim",
			// pip installs into the container's site-packages, which
			// the container takes with it; a venv under the workspace
			// bind is what survives. The PATH prefix is a no-op for
			// projects without one.
			RunCommand: `PATH="$PWD/.venv/bin:$PATH" python main.py`,
			FileName:   "main.py",
			Extension:  ".py",
			Packages: &PackageOps{
				InstallCommand: "python -m venv .venv && .venv/bin/pip install",
				RemoveCommand:  ".venv/bin/pip uninstall -y",
				ListCommand:    "python -m venv .venv && .venv/bin/pip list --format=json --exclude pip --exclude setuptools",
				InitCommand:    "python -m venv .venv && touch requirements.txt",
				ListFormat:     ListFormatJSONArray,
				PackageFile:    "requirements.txt",
			},
		},
		Java: {
			Name:       Java,
			Image:      "eclipse-temurin:21-jdk",
			RunCommand: "java Main.java",
			FileName:   "Main.java",
			Extension:  ".java",
		},
		Go: {
			Name:       Go,
			Image:      "golang:1.23-alpine",
			RunCommand: "go run main.go",
			FileName:   "main.go",
			Extension:  ".go",
			Packages: &PackageOps{
				InstallCommand: "go get",
				RemoveCommand:  "go get",
				RemoveSuffix:   "@none",
				ListCommand:    "go list -m all",
				InitCommand:    "go mod init sandbox",
				ListFormat:     ListFormatLines,
				PackageFile:    "go.mod",
				NoisePrefixes:  []string{"go:", "warning:"},
				SkipLines:      1, // main module row
			},
		},
		Rust: {
			Name:       Rust,
			Image:      "rust:1.79-slim",
			RunCommand: "rustc main.rs -o /tmp/main && /tmp/main",
			FileName:   "main.rs",
			Extension:  ".rs",
			Packages: &PackageOps{
				InstallCommand: "cargo add",
				RemoveCommand:  "cargo remove",
				ListCommand:    "cargo tree --depth 1 --prefix none",
				InitCommand:    "cargo init --name sandbox .",
				ListFormat:     ListFormatLines,
				PackageFile:    "Cargo.toml",
				NoisePrefixes:  []string{"Updating", "Downloading", "Compiling"},
				SkipLines:      1, // root crate row
			},
		},
		C: {
			Name:       C,
			Image:      "gcc:13",
			RunCommand: "gcc -O2 -o /tmp/app main.c && /tmp/app",
			FileName:   "main.c",
			Extension:  ".c",
		},
		CPP: {
			Name:       CPP,
			Image:      "gcc:13",
			RunCommand: "g++ -std=c++17 -O2 -o /tmp/app main.cpp && /tmp/app",
			FileName:   "main.cpp",
			Extension:  ".cpp",
		},
	}
}
